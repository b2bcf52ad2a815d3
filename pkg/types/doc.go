// Package types defines the configuration object, scenario and biophysical
// table types, and standard errors shared by every component of the NDR
// batch pipeline.
package types
