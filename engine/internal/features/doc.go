// Package features maps a completed job's heterogeneous per-source metrics
// into the fixed-length normalized vector used for similarity comparison and
// risk scoring. Field order is fixed by types.FeatureFieldNames; missing
// source categories neutral-fill with 0 so vector length never depends on
// which collectors were active. Normalization statistics are computed over
// the whole comparison population handed to one Build call — vectors from
// different Build calls must not be compared.
package features
