package executor

import (
	"os"
	"testing"
)

// mockLanguage implements Language for testing executor logic
// without the overhead of the real Python runtime.
type mockLanguage struct {
	wasm []byte
}

func (m *mockLanguage) Name() string {
	return "mock"
}

func (m *mockLanguage) Module() []byte {
	return m.wasm
}

func (m *mockLanguage) Args(scriptPath string) []string {
	return []string{"mock", scriptPath}
}

func (m *mockLanguage) Env() map[string]string {
	return map[string]string{"MOCK_LANG": "1"}
}

// newMockLanguage loads testdata/mock.wasm, skipping the test when it has
// not been built.
func newMockLanguage(t testing.TB) *mockLanguage {
	t.Helper()
	wasm, err := os.ReadFile("testdata/mock.wasm")
	if err != nil {
		t.Skip("testdata/mock.wasm not built (GOOS=wasip1 GOARCH=wasm go build -o testdata/mock.wasm ./testdata/mock)")
	}
	return &mockLanguage{wasm: wasm}
}
