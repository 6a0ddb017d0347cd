package transfer

type FacebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type FacebookProfile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	FollowersCount *int64 `json:"followers_count"`
	FriendsCount   *int64 `json:"friends_count"`
	Picture        struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

type FacebookPost struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
	From        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	Reactions struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"reactions"`
	Comments struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"comments"`
	Shares struct {
		Count int64 `json:"count"`
	} `json:"shares"`
}

type FacebookPostList struct {
	Data   []FacebookPost `json:"data"`
	Paging GraphPaging    `json:"paging"`
}

// FacebookPostInsights is a post read with its shares and an inline insights edge.
type FacebookPostInsights struct {
	ID     string `json:"id"`
	Shares struct {
		Count int64 `json:"count"`
	} `json:"shares"`
	Insights GraphInsights `json:"insights"`
}

type FacebookPostResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type FacebookDeleteResponse struct {
	Success bool `json:"success"`
}
