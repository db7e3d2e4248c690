// Package daemonrun hosts the foreground daemon bootstrap shared by the
// loreweave CLI "serve" command and the loreweaved binary.
package daemonrun
