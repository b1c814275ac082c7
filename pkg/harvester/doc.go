// Package harvester provides an embeddable bulk downloader for EagleWeb
// assessor sites.
//
// A run sizes the account-ID space with one unbounded search, then walks it
// from the resume point, discovering range boundaries that each hold about
// the same number of result pages and downloading every range as a part
// file. Part file names are the only record of progress, so an interrupted
// run resumes where the files stop. Merge concatenates the parts into a
// single export with one header line.
//
// # Basic Usage
//
//	cfg := harvester.DefaultConfig()
//	cfg.Tenant = "Grand"
//
//	h, err := harvester.New(cfg, harvester.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	summary, err := h.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if summary.OK() {
//	    res, err := h.Merge(ctx, harvester.MergeOptions{})
//	    ...
//	}
//
// # Event Handling
//
// Implement [EventHandler] and pass it via [WithEventHandler] to observe
// phase changes and finished ranges. Range events are delivered from the
// download workers and may arrive concurrently.
//
// # Dependency Injection
//
// The remote site can be replaced for tests or other report generators:
//
//	h, err := harvester.New(cfg,
//	    harvester.WithOracle(fakeOracle),
//	    harvester.WithReportSessions(fakeSessions),
//	)
//
// # Plugins
//
// Plugins are initialized at the start of every run and shut down when it
// ends. They receive the live [Throttle] and may adjust it while the run is
// in progress; see plugins/configwatcher.
package harvester
