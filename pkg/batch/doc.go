// Package batch streams rendered pages for a list of URLs through a session
// pool.
//
// URLs are split into batches of Config.BatchSize. Every URL of a batch is
// fetched concurrently and its result is delivered as soon as it completes;
// the next batch starts once the current one has drained. The pool, not the
// batch size, bounds how many pages render at the same time.
//
// Example usage:
//
//	p, _ := pool.Open(ctx, pool.DefaultConfig())
//	defer p.Close()
//
//	orch := batch.New[extract.Record](p, extract.NewParser(nil), batch.DefaultConfig())
//	for res := range orch.All(ctx, urls) {
//		if res.Err != nil {
//			log.Warn().Err(res.Err).Str("url", res.URL).Msg("Fetch failed")
//			continue
//		}
//		fmt.Println(res.Record.Title)
//	}
//
// The orchestrator:
//   - yields exactly one Result per URL while the context is live
//   - reports failures per URL, a failed URL never aborts its batch
//   - delivers results in completion order, Result.Index gives input order
//   - stops scheduling batches once the context is cancelled
//
// Fetches already in flight when the context is cancelled stop only as far as
// the fetcher honours the context.
package batch
