package service

import (
	"github.com/gSa1fe/isusP-sub000/internal/model"
)

// PackageService 充值套餐目录，数据来自配置文件，只读
type PackageService struct {
	packages []model.CoinPackage
	byCode   map[string]model.CoinPackage
}

func NewPackageService(packages []model.CoinPackage) *PackageService {
	byCode := make(map[string]model.CoinPackage, len(packages))
	for _, p := range packages {
		byCode[p.Code] = p
	}
	return &PackageService{packages: packages, byCode: byCode}
}

// List 返回上架中的套餐，保持配置顺序
func (s *PackageService) List() []model.CoinPackage {
	list := make([]model.CoinPackage, 0, len(s.packages))
	for _, p := range s.packages {
		if p.Active {
			list = append(list, p)
		}
	}
	return list
}

func (s *PackageService) Get(code string) (model.CoinPackage, error) {
	p, ok := s.byCode[code]
	if !ok || !p.Active {
		return model.CoinPackage{}, ErrPackageNotAvailable
	}
	return p, nil
}
