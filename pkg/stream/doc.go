// Package stream multiplexes a chat turn's model output and tool side
// effects into one ordered, resumable event sequence.
//
// A Writer owns one session. Every event gets the next sequence number, is
// appended to the session Log and is then fanned out to each attached
// Reader. Finish and Fail write the terminal event and seal the session.
//
// A Registry tracks live sessions per conversation. A reconnecting client
// calls Attach with the first sequence number it still needs; the Reader
// replays the log up to the writer's head and continues live without a gap
// or duplicate.
//
// Document handlers never see the Writer. They receive an ArtifactSink that
// can only emit artifact deltas and metadata.
package stream
