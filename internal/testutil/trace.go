package testutil

// FixedTraceGenerator returns the same request id every time.
//
// Golden traces embed request ids, so a scenario run with a
// FixedTraceGenerator produces byte-identical output on every run.
//
// Thread-safety: FixedTraceGenerator is stateless and safe for concurrent use.
type FixedTraceGenerator struct {
	token string
}

// NewFixedTraceGenerator creates a fixed request id generator.
//
// The id is typically set in the scenario YAML:
//
//	request_id: "test-req-0001"
//
// If token is empty, Generate() returns "test-request-default".
func NewFixedTraceGenerator(token string) *FixedTraceGenerator {
	if token == "" {
		token = "test-request-default"
	}
	return &FixedTraceGenerator{token: token}
}

// Generate returns the fixed request id.
func (g *FixedTraceGenerator) Generate() string {
	return g.token
}
