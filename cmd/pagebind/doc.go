// Command pagebind prepares scanned page sets for reading: it drops blank
// scanner padding pages and joins double-page spreads into single images.
package main
