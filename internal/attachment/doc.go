// Package attachment holds the user inputs of a generation run: the story text
// or source document, the reference photo and the voice sample, together with
// the rules that decide when a run may be submitted.
package attachment
