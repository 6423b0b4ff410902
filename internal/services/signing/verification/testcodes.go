//go:build !production

package verification

const testCodesCompiled = true
