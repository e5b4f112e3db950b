// Package analyzer asks a language model to review a document.
//
// An Analyzer renders the prompt template with the document text and file
// name, sends it to a provider and returns the raw reply. Replies are not
// trusted; pass them to the validator package.
//
// # Providers
//
//   - openai: any OpenAI-compatible chat completions endpoint
//     (OPENAI_API_KEY, optional OPENAI_BASE_URL)
//   - gemini: the Gemini API through google.golang.org/genai
//     (GEMINI_API_KEY or GOOGLE_API_KEY)
//   - local: no model; always reports no issues
//
// NewFromEnv picks LLMDIAG_PROVIDER if set, otherwise the first provider with
// an API key, otherwise local.
//
//	a, err := analyzer.NewFromEnv(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	reply, err := a.Analyze(ctx, analyzer.Request{Text: src, FileName: "main.go"})
//
// # Retries and caching
//
// Remote calls are retried with exponential backoff; client errors other
// than 429 are not retried. Replies are cached in an LRU keyed by provider,
// model and rendered prompt, so re-analyzing identical text is free.
//
// # Prompt template
//
// Templates use {FILE_NAME_PLACEHOLDER} (every occurrence) and
// {CODE_PLACEHOLDER} (first occurrence). The built-in template is embedded;
// LoadTemplate reads a replacement from disk.
package analyzer
