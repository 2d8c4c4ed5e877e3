// Package queue provides the bounded FIFO that connects pipeline stages.
// Producers block when a stage falls behind, which propagates backpressure
// upstream to the submitter instead of buffering without limit.
package queue
