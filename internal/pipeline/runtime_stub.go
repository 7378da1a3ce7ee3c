//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func activeEncoder() encoder {
	return stdEncoder{}
}
