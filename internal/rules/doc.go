// Package rules holds the shared normalization and input-validation policy
// applied by enrollment, sign-in and confirmation flows.
package rules
