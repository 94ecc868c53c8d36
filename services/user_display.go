package services

import (
	"context"
	"fmt"

	"github.com/google/go-github/v68/github"
)

// DisplayNameResolver は外部サービスのユーザー名から表示名を解決する
type DisplayNameResolver interface {
	ResolveDisplayName(ctx context.Context, username string) (string, error)
}

// GitHubResolver は GitHub のユーザー情報から表示名を解決する
type GitHubResolver struct {
	Client *github.Client
}

// NewGitHubResolver は GitHub クライアントを作成する。token が空なら認証なし
func NewGitHubResolver(token string) *GitHubResolver {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubResolver{Client: client}
}

// ResolveDisplayName は GitHub ユーザーの表示名を返す
func (r *GitHubResolver) ResolveDisplayName(ctx context.Context, username string) (string, error) {
	user, _, err := r.Client.Users.Get(ctx, username)
	if err != nil {
		return "", fmt.Errorf("github user lookup %s: %w", username, err)
	}
	return GetDisplayName(user), nil
}

// GetDisplayName は GitHub User から表示名を取得する
// Name フィールドが設定されている場合は Name を返し、
// そうでなければ Login を返す
func GetDisplayName(user *github.User) string {
	if user == nil {
		return ""
	}

	if user.Name != nil && *user.Name != "" {
		return *user.Name
	}

	if user.Login != nil {
		return *user.Login
	}

	return ""
}
