// Package cd11 implements the CD-1.1 frame envelope used by stations to
// stream waveform and state-of-health data.
//
// A frame on the wire is a fixed 36 byte header, a payload whose layout is
// selected by the header's frame type, and a trailer carrying an optional
// authentication signature and a CRC-64 comm verification value. All
// integers are big endian.
//
// Decoding never fails past the package boundary: Decoder.Decode turns every
// input buffer into a FrameOrMalformed, keeping the raw bytes and a
// *DecodeError for inputs that do not parse. FrameReader cuts a TCP byte
// stream into frame sized buffers ahead of the decoder, and Encode is the
// inverse of Decode for every payload type.
package cd11
