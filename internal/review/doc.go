// Package review applies reviewer decisions to analysis items.
//
// Counter bookkeeping lives in the jobs store. This package validates the
// requested resolution against the item and performs the campaign side
// effects an acceptance implies: recording aliases, replacing descriptions,
// creating relationships and entities. Reverting an item resets its review
// state only; side effects already applied to the campaign are kept.
package review
