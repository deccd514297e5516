// Package assembler groups sequentially numbered scan images into documents.
//
// The assembler owns the producer's document session state machine. Every
// cycle it scans the input directory in lexicographic order:
//
//   - names not matching img_NNN.{jpg,png,jpeg} are deleted
//   - a matching image whose index does not continue the open session flushes
//     the session first
//   - the image is moved into the staging directory and appended as a page
//
// After the scan it waits for the inactivity timeout, a directory change or
// shutdown, whichever comes first. A timeout flushes the open session. On
// shutdown the open session is flushed and the staging directory emptied.
//
// At most one session is open at a time; StartSession rejects a second one
// with types.ErrSessionOpen.
package assembler
