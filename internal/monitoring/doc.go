// Package monitoring manages monitoring records attached to devices.
//
// A monitoring record has a generated code (MT0001, MT0002, ...), a
// description, the device it watches and an ON/OFF status. Like devices
// it carries an ownership record. Creating or moving a record requires
// access to the target device; reading, updating or deleting it requires
// access to the record itself.
package monitoring
