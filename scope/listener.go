package scope

type Listener interface {
	AfterScopeActivated(s Scope)
	AfterScopeClosed(s Scope)
}

type ListenerFuncs struct {
	Activated func(s Scope)
	Closed    func(s Scope)
}

func (l ListenerFuncs) AfterScopeActivated(s Scope) {
	if l.Activated != nil {
		l.Activated(s)
	}
}

func (l ListenerFuncs) AfterScopeClosed(s Scope) {
	if l.Closed != nil {
		l.Closed(s)
	}
}
