// Package registry loads the device registry from MySQL.
//
// The registry maps every known device code to the batch it belongs to and
// to that batch's company and hardware model. It is loaded once per run with
// a single LEFT JOIN over the device, batch, company and model tables, so a
// device with no batch (or a batch with no company/model) is still present
// with empty attributes. When a code appears twice the later row wins.
//
// Any failure to connect or to run the query is a *ConnectionError. It is
// fatal to the run that issued it, and to nothing else.
package registry
