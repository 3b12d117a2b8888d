package metrics

import "time"

type noopMetrics struct{}

var NoopMetrics Metricer = noopMetrics{}

func (noopMetrics) RecordInfo(version string) {}
func (noopMetrics) RecordUp()                 {}

func (noopMetrics) RecordBlockAdded(bool) {}
func (noopMetrics) RecordBlockRejected()  {}
func (noopMetrics) RecordProofCache(bool) {}

func (noopMetrics) RecordRootChainCall(string) func(error) {
	return func(error) {}
}
func (noopMetrics) RecordExitStarted(string)    {}
func (noopMetrics) RecordExitChallenged(string) {}

func (noopMetrics) RecordScenario(string, bool, time.Duration) {}
