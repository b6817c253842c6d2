// Package bulk submits documents to the document store.
//
// An Executor takes a window of create operations and returns one Result
// per operation. Per-item failures never fail the call; callers classify
// each Result.
//
//	exec, err := bulk.NewDynamoDBExecutor(client, "gvs.vets", bulk.DefaultExecutionOptions())
//	if err != nil { ... }
//	defer exec.Close()
//
//	ops := make([]bulk.Operation, len(docs))
//	for i, d := range docs {
//	    ops[i] = bulk.NewCreateOperation(d)
//	}
//	for _, res := range exec.Execute(ctx, ops) { ... }
//
// DynamoDBExecutor splits a window into micro-batches of at most 25 items
// (the BatchWriteItem limit). Micro-batches share one concurrency budget
// and one throughput budget across all windows. Unprocessed items are
// retried with exponential backoff capped by MaxMicroBatchInterval, and
// the effective micro-batch size follows the observed retry rate.
//
// MemoryExecutor implements the same contract in memory for dry runs.
package bulk
