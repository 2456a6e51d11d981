// Package fbq provides a Go client and worker SDK for FBQ, a remote
// job-orchestration service that tracks named jobs (opaque factbase
// payloads), durable binary artifacts, and named mutually-exclusive locks.
//
// The SDK has two primary components:
//
//   - [Client]: push jobs, poll for completion, retrieve output (stdout,
//     exit code, verification verdict, pulled factbase), and manage locks
//     on job names and durables.
//   - [Worker]: pop unclaimed jobs as ZIP archives, process them through a
//     handler with a composable middleware chain, and upload result
//     archives, with graceful shutdown.
//
// # Quick Start
//
// Push a job and wait for its result:
//
//	client, err := fbq.NewClient("q.example.com",
//	    fbq.WithPort(443),
//	    fbq.WithTLS(true),
//	    fbq.WithToken(os.Getenv("FBQ_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id, err := client.Push(ctx, "nightly-report", payload, "source:cron")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Wait(ctx, id); err != nil {
//	    log.Fatal(err)
//	}
//	var out bytes.Buffer
//	if err := client.Pull(ctx, id, &out); err != nil {
//	    log.Fatal(err)
//	}
//
// Process jobs:
//
//	worker, err := fbq.NewWorker("q.example.com",
//	    fbq.WithOwner("builder-7"),
//	)
//	worker.Handle(func(ctx fbq.JobContext) error {
//	    result, err := process(ctx.ArchivePath)
//	    if err != nil {
//	        return err
//	    }
//	    ctx.SetResult(result)
//	    return nil
//	})
//	worker.Start(ctx)
//
// # Errors
//
// Network-level failures are classified into three typed errors, all of
// which match their sentinels with errors.Is: [TimeoutError] (the transport
// did not complete within the timeout after the retry budget), [ServerError]
// (status 500 or 503) and [BadResponseError] (any other unexpected status,
// or a connection failure below HTTP). Invalid arguments are rejected
// before any network call is made.
//
// Every call is synchronous and blocking. A single retry budget bounds the
// whole exchange; only transport timeouts are retried, and a streamed
// download is never retried once bytes have reached the caller's sink.
package fbq
