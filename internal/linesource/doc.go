// Package linesource turns a serial byte stream into tokens.
//
// A hardware channel is a newline-delimited text stream. Reader splits it into
// lines, Pump feeds those lines into a token queue, and OpenSerial opens the
// physical port. None of this is part of the dispatch decision: a pump that
// dies takes only its own channel with it.
package linesource
