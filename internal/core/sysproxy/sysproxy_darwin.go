package sysproxy

func platformBackend(runner CommandRunner) backend {
	return networkSetup{runner: runner}
}
