// Package gemini implements the generation.CopyProvider and
// generation.ImageProvider interfaces on Google's Gemini API.
//
// This package is an infrastructure adapter: it connects the generation
// pipeline to the external model service without exposing genai types to
// the core.
//
// Key components:
//
// 1. CopyWriter:
//   - Renders the copy prompt from an embedded template
//   - Requests a JSON array of slides and validates it
//   - Retries transient API errors with exponential backoff and jitter
//
// 2. ImageGenerator:
//   - Renders the image prompt for a slide and style
//   - Requests an image modality response and extracts the inline data
//   - Makes exactly one call; retries belong to generation.ImageRequester
//
// Both depend only on the ContentGenerator interface, which the genai
// client's Models service satisfies.
package gemini
