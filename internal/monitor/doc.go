// Package monitor runs the analysis cycle for edited documents.
//
// # Cycle
//
//	save event
//	  -> gate (enabled, language, extension, fingerprint vs ledger)
//	  -> scheduler (per-document debounce)
//	  -> analyzer (language model)
//	  -> validator (untrusted reply -> issues)
//	  -> reconciler (re-align lines to current text)
//	  -> publisher + ledger (one transaction when both support it)
//
// The ledger only advances after a complete cycle. Cycles are numbered when
// they start and commit one at a time. A cycle that finishes after a
// later-started cycle has committed is discarded, unless the content it
// analyzed is still the document's content, so a slow analysis of old text
// never replaces the result for newer text. Forget discards every cycle
// already running for the document.
//
// A failed analysis leaves the ledger untouched, so the next save of the
// same content is analyzed again.
//
// # Usage
//
//	m, err := monitor.New(monitor.Config{
//	    Settings:  settings,
//	    Ledger:    store,
//	    Source:    document.NewAFSSource(),
//	    Analyzer:  a,
//	    Publisher: diagnostics.NewStorePublisher(store),
//	})
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	m.HandleSave(ctx, monitor.Event{DocumentID: "/src/app/main.go", LanguageID: "go"})
//
// HandleOpen skips the debounce and the ledger comparison, and AnalyzeAll
// runs HandleOpen for many documents with a bounded worker pool.
package monitor
