package captcha

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-0123456789"

func testConfig(t *testing.T, overrides map[string]string) Config {
	t.Helper()
	m := map[string]string{
		KeySecretKey:      testSecret,
		KeyHashIterations: "1000",
	}
	for k, v := range overrides {
		m[k] = v
	}
	cfg, err := ConfigFromMap(m)
	require.NoError(t, err)
	return cfg
}

func newTestService(t *testing.T, overrides map[string]string, opts ...Option) *Service {
	t.Helper()
	svc, err := New(testConfig(t, overrides), opts...)
	require.NoError(t, err)
	return svc
}
