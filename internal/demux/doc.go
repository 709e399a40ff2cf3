// Package demux turns an MPEG transport stream into the compressed packets
// the player queues for its decoders. [Source] discovers the first H.264 or
// H.265 video stream and the first AAC audio stream from the PMT, converts
// timestamps to seconds and, on seekable inputs, repositions by estimating
// the byte offset from the stream's average bitrate.
//
// Codec helpers split Annex B video into NAL units ([ParseAnnexB],
// [ParseAnnexBHEVC]), read picture dimensions from an SPS ([ParseSPS]) and
// frame AAC audio ([ParseADTS]).
package demux
