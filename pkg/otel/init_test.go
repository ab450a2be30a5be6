package otel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"atlaswd/config"
)

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "collector:4317", normalizeEndpoint("http://collector:4317"))
	assert.Equal(t, "collector:4317", normalizeEndpoint("https://collector:4317/"))
	assert.Equal(t, "localhost:4317", normalizeEndpoint("localhost:4317"))
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 1.0, sampleRatio(Config{Environment: "development", SampleRatio: 0.2}))
	assert.Equal(t, 0.2, sampleRatio(Config{Environment: "production", SampleRatio: 0.2}))
	assert.Equal(t, 0.1, sampleRatio(Config{Environment: "production"}))
	assert.Equal(t, 1.0, sampleRatio(Config{Environment: "production", SampleRatio: 3}))
}

func TestConfigFor(t *testing.T) {
	saved := config.Cfg.ServiceName
	config.Cfg.ServiceName = "atlaswd-auth"
	t.Cleanup(func() { config.Cfg.ServiceName = saved })

	assert.Equal(t, "atlaswd-auth", ConfigFor("server").serviceName())
	assert.Equal(t, "atlaswd-auth-worker", ConfigFor("worker").serviceName())
}
