package observability

// NoopLogger discards everything. Used in unit tests that don't care about
// log output but need something satisfying the Logger interface.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Warn(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}
func (NoopLogger) Fatal(string, map[string]interface{}) {}
func (n NoopLogger) With(map[string]interface{}) Logger { return n }
func (n NoopLogger) WithPrefix(string) Logger            { return n }
