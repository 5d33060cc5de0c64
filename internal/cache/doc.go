// Package cache keeps task listings and task details in a key-value cache in
// front of the store. Writers never update entries in place: every mutation
// deletes the affected keys and the next read repopulates them.
//
// Key layout:
//
//	tasks:{subject}:{team}:{status|all}:page{p}:limit{l}   one listing page
//	tasks:count:{subject}:{team}:{status|all}              total for a listing
//	task:{id}                                              one task
package cache
