package rpm

import "github.com/buildorch/buildorch"

func newBuildError(spec string, err error) error {
	return buildorch.NewBuildError("rpm:"+spec, err)
}

func newSignError(spec string, err error) error {
	return buildorch.NewSignError("rpm:"+spec, err)
}

func newPublishError(spec string, err error) error {
	return buildorch.NewPublishError("rpm:"+spec, err)
}
