package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"slack-checkin-notify/services"
)

// AddMemberAction はセクションにメンバーを登録する
//
//	/checkin add-member <セクション> <@user|github:login|名前> [項目1,項目2,...]
type AddMemberAction struct {
	app *App
}

func (a *AddMemberAction) Name() string { return "add-member" }

func (a *AddMemberAction) Usage() string {
	return "/checkin add-member <セクション> <@user|github:ユーザー名|表示名> [報告項目1,報告項目2,...]"
}

func (a *AddMemberAction) Validate(ac *ActionContext) bool {
	return ac.ServerID != "" && len(ac.Args) >= 2
}

func (a *AddMemberAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	section := ac.Args[0]
	identity := parseIdentity(ac.Args[1])

	// Slack ユーザーなら表示名を補完しておく
	if identity.SlackUserID != "" && a.app.Messenger != nil {
		member, err := a.app.Messenger.FetchMember(ctx, identity.SlackUserID)
		if err != nil {
			log.Printf("failed to fetch slack member %s: %v", identity.SlackUserID, err)
		} else if member != nil {
			identity.DisplayName = member.DisplayName
			if identity.DisplayName == "" {
				identity.DisplayName = member.Name
			}
		}
	}

	var format []string
	if len(ac.Args) > 2 {
		format = splitList(strings.Join(ac.Args[2:], " "))
	}

	member, err := a.app.Registry.AddMember(ctx, ac.ServerID, section, identity, format)
	if err != nil {
		log.Printf("add member error (server: %s): %v", ac.ServerID, err)
		reply(cb, replyForError(err))
		return true
	}

	reply(cb, fmt.Sprintf("セクション「%s」に %s を登録しました（報告項目: %s）",
		member.Section, member.Mention(), strings.Join(member.UpdatesFormat, " / ")))
	return true
}

// ListMembersAction はセクションごとのメンバー一覧を表示する
type ListMembersAction struct {
	app *App
}

func (a *ListMembersAction) Name() string { return "list-members" }

func (a *ListMembersAction) Usage() string { return "/checkin list-members" }

func (a *ListMembersAction) Validate(ac *ActionContext) bool {
	return ac.ServerID != ""
}

func (a *ListMembersAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	sections, err := a.app.Registry.ListMembers(ctx, ac.ServerID)
	if err != nil {
		log.Printf("list members error (server: %s): %v", ac.ServerID, err)
		reply(cb, replyForError(err))
		return true
	}

	if len(sections) == 0 {
		reply(cb, "まだメンバーが登録されていません。`/checkin add-member` で登録してください。")
		return true
	}

	var b strings.Builder
	b.WriteString("*チームメンバー一覧*\n")
	for _, s := range sections {
		fmt.Fprintf(&b, "*%s*\n", s.Section)
		for _, m := range s.Members {
			fmt.Fprintf(&b, "• %s（%s）\n", m.Mention(), strings.Join(m.UpdatesFormat, " / "))
		}
	}

	reply(cb, strings.TrimSuffix(b.String(), "\n"))
	return true
}

// parseIdentity はメンションや github: 指定からメンバーの識別子を作る
func parseIdentity(ref string) services.MemberIdentity {
	ref = strings.TrimSpace(ref)

	switch {
	case strings.HasPrefix(ref, "<@") || strings.HasPrefix(ref, "@"):
		return services.MemberIdentity{SlackUserID: cleanUserID(ref)}
	case strings.HasPrefix(strings.ToLower(ref), "github:"):
		return services.MemberIdentity{GithubUsername: strings.TrimSpace(ref[len("github:"):])}
	default:
		return services.MemberIdentity{DisplayName: ref}
	}
}

// splitList はカンマ区切りの文字列を分割する
func splitList(text string) []string {
	var items []string
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
