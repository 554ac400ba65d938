package di

import (
	"go.uber.org/dig"
)

// Container 依赖注入容器
type Container struct {
	*dig.Container
}

// NewContainer 创建依赖注入容器
func NewContainer() *Container {
	return &Container{Container: dig.New()}
}

// Invoke 封装dig.Invoke，提供更友好的接口
func (c *Container) Invoke(function interface{}, opts ...dig.InvokeOption) error {
	return c.Container.Invoke(function, opts...)
}

// Provide 封装dig.Provide，提供更友好的接口
func (c *Container) Provide(constructor interface{}, opts ...dig.ProvideOption) error {
	return c.Container.Provide(constructor, opts...)
}

// ProvideAll 依次注册多个构造函数，遇错即停
func (c *Container) ProvideAll(constructors ...interface{}) error {
	for _, constructor := range constructors {
		if err := c.Provide(constructor); err != nil {
			return err
		}
	}
	return nil
}
