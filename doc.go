// Package wcserver implements the wallet side of bridge-relayed
// dApp sessions. A Server listens on connection URLs shared by dApps,
// runs the session handshake against the host's Delegate, keeps
// established sessions, and routes inbound JSON-RPC requests to
// registered handlers.
//
// Quick start:
//
//	transport, _ := redisbridge.NewFromEnv()
//	srv, err := wcserver.New(wcserver.Config{
//	    Transport: transport,
//	    Delegate:  delegate, // your Delegate implementation
//	})
//	if err != nil {
//	    // ...
//	}
//	go srv.Run(ctx)
//
//	url, err := wc.ParseURL(uriFromQRCode)
//	if err != nil {
//	    // ...
//	}
//	if err := srv.Connect(ctx, url); err != nil {
//	    // ...
//	}
//
// The Delegate's ShouldStartSession is then asked to approve or reject
// the dApp's session request; once it answers, the session shows up in
// OpenSessions and inbound requests flow to handlers registered with
// RegisterHandler.
//
// Everything stateful runs through Run's event loop, so delegate
// notifications arrive one at a time. Handlers run on the transport's
// receive goroutine instead, keeping per-connection ordering intact.
package wcserver
