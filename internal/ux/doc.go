// Package ux persists user-facing preferences for briefly: the dark mode
// choice and a few local usage counters. Preferences live in
// <config dir>/preferences.json and are read once at startup.
package ux
