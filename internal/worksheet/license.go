package worksheet

import (
	"fmt"

	officelicense "github.com/unidoc/unioffice/common/license"
	pdflicense "github.com/unidoc/unipdf/v3/common/license"
)

// SetLicense 设置 UniDoc 计量许可，空 key 时跳过
func SetLicense(key string) error {
	if key == "" {
		return nil
	}
	if err := officelicense.SetMeteredKey(key); err != nil {
		return fmt.Errorf("unioffice license: %w", err)
	}
	if err := pdflicense.SetMeteredKey(key); err != nil {
		return fmt.Errorf("unipdf license: %w", err)
	}
	return nil
}
