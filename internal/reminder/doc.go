// Package reminder is the eligibility-and-dispatch core.
//
// One Run is strictly sequential: reconcile events whose window has fully
// elapsed, send the daily summary when the clock sits on the daily boundary,
// then scan upcoming unnotified events and dispatch those inside their
// notification window. Correctness assumes runs never overlap.
package reminder
