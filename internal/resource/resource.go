// Package resource provides the minimal resource-detection collaborator
// the pipeline core consumes (spec §6): a process resource attached to
// every export, detected once at processor/reader construction when no
// resource is explicitly supplied.
package resource

import (
	"os"

	"go.opentelemetry.io/collector/pdata/pcommon"
)

// Detector returns the process resource to attach to telemetry.
// Detector implementations are external collaborators (spec §1): this
// package supplies only the interface and a minimal default, matching
// the teacher's pattern of depending on injected collaborators
// (CheckpointManager, MetricsReporter) rather than owning detection
// logic itself.
type Detector interface {
	Detect() (pcommon.Resource, error)
}

// defaultDetector fills in a small set of process attributes. Real
// deployments inject a richer Detector (container, cloud, k8s); this one
// exists so the pipeline core has something concrete to attach when the
// caller supplies none.
type defaultDetector struct{}

// Default returns the built-in Detector.
func Default() Detector { return defaultDetector{} }

func (defaultDetector) Detect() (pcommon.Resource, error) {
	res := pcommon.NewResource()
	attrs := res.Attributes()

	hostname, err := os.Hostname()
	if err == nil {
		attrs.PutStr("host.name", hostname)
	}
	attrs.PutInt("process.pid", int64(os.Getpid()))

	return res, nil
}
