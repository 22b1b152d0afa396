// Package remote talks to the image-generation backends that perform
// prompt-driven edits, and to the save-image endpoint.
//
// Each backend takes a multipart form with the fields prompt, image, mask
// and extraImage (PNG parts) and answers with JSON carrying the URL of the
// result as imageUrl or url. Backends differ only in how they treat the mask:
//
//	gemini         mask optional
//	openai-mask    mask required
//	openai-prompt  mask never sent
//
// Results are fetched through an imaging.Loader so they always come back
// through the same-origin proxy. Nothing is retried.
package remote
