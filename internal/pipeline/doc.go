// Package pipeline provides an HTTP client for the story video generation service.
//
// The service exposes a multipart generate endpoint that blocks until the
// remote pipeline finishes, a logs endpoint returning the accumulated run log,
// a styles endpoint and a video download endpoint. Failures are classified
// into three sentinel errors:
//
//   - ErrNetwork: no response was received
//   - ErrPipeline: a non-success status, optionally with a detail message
//   - ErrMalformedResponse: a success status with an unusable body
package pipeline
