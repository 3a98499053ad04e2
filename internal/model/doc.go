// Package model defines the configuration objects moved by cfgmigrate.
//
// Every other internal package imports model; model imports nothing internal.
// It owns:
//   - Kind and Key, the identity of an object on one instance
//   - Object, the decoded record, and Ref, its immutable ObjectRef view
//   - per-kind field specs: discriminators, mutable fields, reference slots
//   - canonical JSON and content hashing used for equivalence checks
//
// Numbers read from an instance are kept as json.Number so that canonical
// encoding never goes through float64.
package model
