// Package bootstrap wires configuration, logging, the two stores, the
// authentication core and the HTTP API into one App, and owns its
// start and shutdown order.
//
//	app, err := bootstrap.NewApp(ctx)
//	if err != nil {
//	    return err
//	}
//	if err := app.Start(ctx); err != nil {
//	    app.Shutdown()
//	    return err
//	}
//	app.WaitForShutdown()
//	app.Shutdown()
//
// Shutdown stops the HTTP server before closing the stores so no in-flight
// request sees a closed connection.
package bootstrap
