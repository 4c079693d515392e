// Package bootstrap orchestrates the service lifecycle: configuration
// validation, logger initialization, component startup in registration
// order, signal-driven graceful shutdown in reverse order, and
// startup/shutdown hooks.
//
// # Quick Start
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app.RegisterComponent(redisComponent)
//	app.RegisterComponent(hubComponent)
//	app.RegisterComponent(serverComponent)
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package bootstrap
