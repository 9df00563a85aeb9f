// Package client is the entry point for talking to the inference service.
//
// It covers two transports: one-shot JSON calls over HTTP (with rate limit
// retries) and streaming tasks over a websocket, driven by the session
// package.
//
// # Basic Usage
//
// Create a client and run a streaming task with a handler:
//
//	c := client.New(client.Config{APIKey: key})
//	err := c.Stream(ctx, session.Callbacks{
//	    Open: func(ctx context.Context, w session.Writer) {
//	        w.Send(protocol.NewASRRunTask(taskID, "paraformer-realtime-v2", params))
//	    },
//	    Event: func(ctx context.Context, w session.Writer, ev protocol.Event) {
//	        fmt.Println(ev.Kind())
//	        if ev.Kind().Terminal() {
//	            w.Close()
//	        }
//	    },
//	})
//
// The asr and tts packages provide ready-made handlers for the common
// recognition and synthesis flows.
//
// # Vocabularies
//
// Hot word lists are managed through the HTTP API:
//
//	id, err := c.Vocabularies().Create(ctx, "paraformer-realtime-v2", "demo",
//	    []client.VocabularyEntry{{Text: "inferstream", Weight: 4}})
//
// # Errors
//
// Non-2xx HTTP responses become *APIError. Only status 429 is retried;
// everything else, including network failures, is returned as is. Websocket
// upgrade failures are *transport.DialError and are never retried.
package client
