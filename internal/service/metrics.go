package service

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service")

// Recorder receives engine outcomes. infra.Metrics implements it on Prometheus.
type Recorder interface {
	ObserveFulfillment(outcome string, attempts int)
	ObserveTransfer(outcome string)
	ObserveRetry(op string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFulfillment(string, int) {}
func (nopRecorder) ObserveTransfer(string)         {}
func (nopRecorder) ObserveRetry(string)            {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
