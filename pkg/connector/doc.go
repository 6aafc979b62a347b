// Package connector groups the extractors and loaders a pipeline runs between.
//
// # Layout
//
//   - core: the Extractor and Loader contracts, LoadResult and ExtractError.
//   - sources: csv, json/jsonl and api extractors. Each yields records lazily
//     through an iter.Seq2 and reports malformed input units as recoverable
//     *core.ExtractError values without stopping.
//   - destinations: the transactional sql loader (sqlite, postgres, mysql)
//     and the streaming csv loader.
//   - registry: selects the implementation for a configured type.
//
// # Example Usage
//
//	ext, err := registry.NewExtractor(cfg.Extract, logger)
//	if err != nil {
//		return err
//	}
//	for rec, err := range ext.Extract(ctx) {
//		if core.IsRecoverable(err) {
//			continue
//		}
//		if err != nil {
//			return err
//		}
//		// use rec
//	}
//
// Loaders receive batches and commit each one atomically where the target
// allows it:
//
//	loader, err := registry.NewLoader(cfg.Load, logger)
//	if err != nil {
//		return err
//	}
//	defer loader.Close()
//	res, err := loader.Load(ctx, batch)
package connector
