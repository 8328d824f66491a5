// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestDefault_Types(t *testing.T) {
	reg := Default()
	assert.Equal(t, []string{
		QueueTypeGenericNotification,
		QueueTypeJobApplication,
		QueueTypeNewJobPosting,
	}, reg.Types())

	spec, ok := reg.Lookup(QueueTypeNewJobPosting)
	require.True(t, ok)
	assert.True(t, spec.RequiresJob)
	assert.Equal(t, 1, spec.DefaultPriority)

	_, ok = reg.Lookup("carrier_pigeon")
	assert.False(t, ok)
}

func TestRegistry_Validate(t *testing.T) {
	reg := Default()

	tests := []struct {
		name      string
		queueType string
		jobID     *int64
		payload   string
		valid     bool
	}{
		{"new job with id", QueueTypeNewJobPosting, int64Ptr(12), `{"title":"Go Developer"}`, true},
		{"new job without id", QueueTypeNewJobPosting, nil, `{}`, false},
		{"application with bad applicant", QueueTypeJobApplication, int64Ptr(3), `{"applicantId":"x"}`, false},
		{"generic without job", QueueTypeGenericNotification, nil, `{"userId":7,"message":"hi"}`, true},
		{"unknown type", "carrier_pigeon", nil, `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := reg.Validate(tt.queueType, tt.jobID, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid, "errors: %v", result.GetErrorMessages())
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue-types.json")
	content := `{"version":"2.0.0","queueTypes":[{"type":"digest","displayName":"Digest","defaultPriority":2}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", reg.Version)

	spec, ok := reg.Lookup("digest")
	require.True(t, ok)
	assert.Equal(t, 2, spec.DefaultPriority)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
